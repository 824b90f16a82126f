// Package nfc turns scanned tag payloads into asset metadata and keeps a
// local journal of every scan a replica processes.
package nfc
