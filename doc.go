/*
Package menuflow is a multi-channel conversational automation engine.

Given an inbound customer message on WhatsApp, the website widget, Messenger
or Instagram, the Engine decides whether a scripted menu flow should answer,
walks the customer through a tree of menus and options, keeps per-customer
state between messages, and hands the conversation to an AI assistant or a
human when the flow cannot resolve the input.

# Concept

An organization configures Automations. Each automation has triggers (a
keyword, a first message, a button tap) that open an entry menu, and menus
whose options lead to other menus, send a message, end the flow, or ask for
the assistant. The Engine owns no I/O of its own: sessions live behind a
ports.SessionStore, configuration behind a ports.ConfigReader, and replies
leave through one ports.Sender per channel.

Every event follows the same path:

  - load the customer's session, or run the trigger matcher when there is none
  - advance the menu state machine with the customer's input
  - render the replies for the channel's capabilities
  - commit the new session with compare-and-swap
  - send the replies, then dispatch any fallback in the background

Two events of the same customer racing on different instances are settled by
the store: the loser re-reads once and otherwise gives up with the
"superseded" outcome, so a customer never receives the same menu twice.

# Usage

	store := memory.NewStore()
	config, err := memory.NewConfigStore(automations...)
	if err != nil {
		log.Fatal(err)
	}

	eng := menuflow.New(store, config,
		menuflow.WithSender(domain.ChannelWhatsApp, whatsapp.NewClient(phoneID, token)),
		menuflow.WithAssistant(notify.New(assistantURL)),
	)
	defer eng.Close()

	res, err := eng.Handle(ctx, domain.InboundEvent{
		OrganizationID:  "acme",
		Channel:         domain.ChannelWhatsApp,
		CustomerAddress: "+15550100",
		Kind:            domain.InputText,
		Text:            "What are your hours?",
	})

The cmd/menuflow binary wires the same engine behind an HTTP server with the
WhatsApp webhook, a Redis or in-memory session store and YAML automations.
*/
package menuflow
