// Package domain defines the boundaries the session depends on: the message
// transport and the persisted client settings. It contains plain types and
// contracts (interfaces) only.
package domain
