//go:build !linux

package strategy

func adviseRandom([]byte) error { return nil }
