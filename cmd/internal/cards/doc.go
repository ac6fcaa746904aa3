// Package cards owns task cards: the model, the Repository contract with
// its memory, flat-file and Postgres adapters, and the Service that applies
// ownership, validation and change notification on top of a Repository.
package cards
