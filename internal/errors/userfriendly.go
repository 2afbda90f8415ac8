package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapDictionaryError wraps dictionary resolution errors with user-friendly context
func WrapDictionaryError(err error, path string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Dictionary error in %s", path),
		Reason:  extractDictionaryReason(err),
		Hint:    "A dictionary with definition errors must not be used; fix every reported entry",
		Try:     fmt.Sprintf("ctdict validate %s", path),
		Err:     err,
	}
}

// WrapEncodeError wraps command encoding errors with user-friendly context
func WrapEncodeError(err error, command string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Command encoding failed: %s", command),
		Reason:  extractCodecReason(err),
		Hint:    "Check the argument names and values against the command definition",
		Try:     fmt.Sprintf("ctdict info --command %s <dictionary>", command),
		Err:     err,
	}
}

// WrapDecodeError wraps telemetry decoding errors with user-friendly context
func WrapDecodeError(err error, packet string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Telemetry decoding failed: %s", packet),
		Reason:  extractCodecReason(err),
		Hint:    "The frame may belong to a different packet, or may be truncated",
		Try:     fmt.Sprintf("ctdict info --packet %s <dictionary>", packet),
		Err:     err,
	}
}

func extractDictionaryReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "cyclic include") {
		return "An include chain reaches back to itself"
	}
	if strings.Contains(errStr, "unknown reference") {
		return "An equation or include names something the dictionary does not define"
	}
	if strings.Contains(errStr, "duplicate") {
		return "Two definitions claim the same name, opcode, or APID"
	}
	if strings.Contains(errStr, "overlaps") {
		return "Two fields claim the same bytes without disjoint bit masks"
	}
	if strings.Contains(errStr, "parse") || strings.Contains(errStr, "YAML") {
		return "The dictionary file is not valid YAML"
	}

	return "The dictionary failed validation"
}

func extractCodecReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "missing argument") {
		return "A required argument was not supplied"
	}
	if strings.Contains(errStr, "unknown enum value") {
		return "A symbolic value has no mapping in the argument's enumeration"
	}
	if strings.Contains(errStr, "out of range") || strings.Contains(errStr, "does not fit") {
		return "A value does not fit the field's bit width"
	}
	if strings.Contains(errStr, "layout needs") {
		return "The frame is shorter than the packet layout requires"
	}
	if strings.Contains(errStr, "insufficient history") {
		return "An equation looked further back than the stream has samples"
	}

	return "A codec error occurred"
}
