// Package tgui provides small helpers for composing Telegram messages in
// ParseMode="HTML": escaping, inline markup and Telegram's size limits.
package tgui
