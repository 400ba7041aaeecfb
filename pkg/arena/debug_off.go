//go:build !arcdebug

package arena

const debugEnabled = false
