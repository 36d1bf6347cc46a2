// Package rules runs user-defined transaction automation rules.
//
// A trigger event (transaction created or updated) is handed to the Dispatcher,
// which loads the user's active rules for that trigger, orders them by priority
// and id, evaluates each rule's condition group against a flattened snapshot of
// the transaction and applies the actions of matching rules through the
// EntityRepository. Every evaluation is written to the ExecutionLogStore.
//
// Conditions, formulas and templates are pure. Only actions and logging do I/O.
// A failing rule never blocks the rules after it or the write that triggered it.
package rules
