// Package tgui holds small Telegram UI helpers: inline keyboard builders,
// "prefix:action:payload" callback data and list paging.
package tgui
