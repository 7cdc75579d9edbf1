/*
Package session implements timeout-bound access to session stores.

Every call made through a Manager carries a deadline. Writes are detached
from the caller's cancellation so that a transition is either applied in
full or not at all, and deadline expiry surfaces as domain.ErrStoreTimeout
which callers treat as retryable.
*/
package session
