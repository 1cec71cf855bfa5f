package site

import "fmt"

// ConfigurationError reports a missing, unreadable or invalid site configuration
type ConfigurationError struct {
	Path string
	Msg  string
	Err  error
}

func (e *ConfigurationError) Error() string {
	msg := e.Msg
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(path, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Path: path, Msg: fmt.Sprintf(format, args...)}
}
