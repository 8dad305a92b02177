// Package worm defines the error taxonomy every lockwatch component
// classifies failures against.
package worm
