// Package tgui holds small helpers for Telegram HTML parse mode: escaped
// HTML fragments and rune-safe truncation.
package tgui
