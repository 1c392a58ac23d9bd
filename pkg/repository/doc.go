// Package repository defines the event vocabulary: aggregate types, event
// types, payload schemas and unique-constraint types shared by the command
// and query sides. Payloads are event-type-scoped JSON; adding fields is
// backward-compatible because reducers ignore unknown fields.
package repository
