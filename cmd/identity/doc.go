// Package identity owns todolist user accounts: registration, credential
// checks and username availability. Persistence sits behind Store with
// in-memory, JSON file and PostgreSQL implementations.
package identity
