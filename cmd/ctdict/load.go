package main

import (
	"strings"

	"github.com/groundside/ctdict/internal/dict"
	uerr "github.com/groundside/ctdict/internal/errors"
)

// loadDict loads and resolves dictionary files, wrapping definition
// errors with user-facing context.
func loadDict(paths []string) (*dict.Dictionary, error) {
	d, err := dict.LoadDictionary(paths...)
	if err != nil {
		return nil, uerr.WrapDictionaryError(err, strings.Join(paths, ", "))
	}
	return d, nil
}
