package core

var (
	_ ConfigProvider  = (*CfgxConfigProvider)(nil)
	_ RawConfigLoader = staticRawConfigLoader{}
	_ OptionsResolver = GoOptionsResolver{}
)
