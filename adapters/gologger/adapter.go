package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const DefaultName = "bulkedit"

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	return glog.Resolve(name, provider, logger)
}

// Component returns the logger for a named component such as
// "bulkedit.engine" or "bulkedit.transport".
func Component(provider glog.LoggerProvider, component string) glog.Logger {
	component = strings.TrimSpace(component)
	name := DefaultName
	if component != "" && !strings.HasPrefix(component, DefaultName) {
		name = DefaultName + "." + component
	} else if component != "" {
		name = component
	}
	_, logger := Resolve(name, provider, nil)
	return logger
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the glog pair then returns the go-job bridges used by
// the queued apply worker.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
