package tgui

import "errors"

// MaxCallbackDataLen is Telegram's callback_data limit in bytes, for the whole
// "prefix:action:payload" string.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
