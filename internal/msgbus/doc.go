// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

// Package msgbus is a synchronous, in-process publish/subscribe bus keyed by
// numeric topic ids.
//
// Subscribers register a Handler for a topic, or for TopicAny to see every
// message. Send walks the subscriptions in registration order and calls each
// matching handler on the caller's goroutine before returning.
//
// Subscriptions can also be bound to an Owner. An owner-bound subscription
// forwards matching messages to the owner as an event carrying the bus's
// message code, and is removed automatically when the owner is deleted.
//
// # Mutation during dispatch
//
// Handlers may subscribe, unsubscribe (including their own subscription) and
// send while a dispatch is in progress. A subscription removed during a walk
// is never visited afterwards, and subscriptions added during a walk are not
// visited by that walk.
//
// # Concurrency
//
// A Bus is not safe for concurrent use. Programs that touch the bus from
// several goroutines should funnel every call through a loop.Loop.
package msgbus
