/*
Package domain contains the core domain models of the menuflow engine.

It defines the declarative configuration of a chatbot automation (Automations,
Triggers, Menus, Options and Actions), the per-customer Session that the state
machine advances, and the wire shapes exchanged with channel collaborators.
This package is kept pure and free of I/O, following Hexagonal Architecture
principles.

# Key Entities

  - Automation: a prioritized bundle of Triggers, Menus and Settings for one organization/channel scope.
  - Menu: one conversational state, rendered as text, buttons or a list.
  - Action: the closed set of effects an Option can have (ShowMenu, SendMessage, FallbackAI, End).
  - Session: the versioned, expiring record of where a customer is in a flow.
  - InboundEvent / OutboundMessage: what the engine receives from and hands back to channels.
*/
package domain
