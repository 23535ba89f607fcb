package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Pacer           = (*FixedPacer)(nil)
	_ Pacer           = (*TokenBucketPacer)(nil)
	_ ConfigProvider  = (*CfgxConfigProvider)(nil)
	_ OptionsResolver = GoOptionsResolver{}
	_ RawConfigLoader = StaticConfigLoader{}
	_ MetricsRecorder = NopMetricsRecorder{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
