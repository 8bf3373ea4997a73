// Package actor hosts actors on a Stage.
//
// An Actor is an address with a mailbox. Tell enqueues a behavior; Ask
// enqueues one that produces a result delivered through a completes.Future.
// Behaviors for one actor run one at a time, in send order, on whichever
// dispatcher worker owns the actor's mailbox.
//
// A failed behavior is routed to the actor's supervisor: its explicit
// supervisor, the nearest ancestor's child supervisor, a common supervisor
// for its protocol, or the stage default. The Stage is also the plugin
// Registrar through which mailbox, completes and supervision providers are
// installed.
package actor
