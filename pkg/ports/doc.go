/*
Package ports defines the driven ports (interfaces) for the menuflow engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various session backends, configuration sources and
channel collaborators.

# Key Interfaces

  - SessionStore: Versioned, expiring per-customer session state with compare-and-swap.
  - ConfigReader / ConfigStore: Read and CRUD access to Automation documents.
  - ContactRegistry: Durable "has this address contacted us before" flag.
  - TurnLog: Recent conversation turns handed to the AI assistant.
  - Sender, Assistant, EscalationSink, IssueReporter: Outbound collaborators.
  - EventHandler: The engine as seen by webhook adapters.
*/
package ports
