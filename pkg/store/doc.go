// Package store implements the resource store fabric: a uniform concurrent
// key-value layer backing every mock resource type (customers,
// subscriptions, invoices, charges, ...).
//
// Every resource is stored as an Object — a tagged document with a stable
// id, an object-type tag, a creation timestamp, and a bag of resource-
// specific fields. A Store holds one resource type. Reads (Get, List) never
// block on writes to the same store; writes (Insert, Update, Delete, Clear)
// are serialized behind a single mutex so that, for any one store, writes
// are totally ordered while readers observe a consistent snapshot.
//
// Two stores in this system (tokens and payment_methods) additionally
// consult a shared fallback Store on Get misses, so fixtures placed there
// are visible without being copied into each store; see
// WithGlobalFallback. The server wires an empty fallback Store for each.
package store
