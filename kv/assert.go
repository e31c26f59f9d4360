package kv

var (
	_ Store = (*Redis)(nil)
	_ Store = (*Memory)(nil)
)
