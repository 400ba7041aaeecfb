//go:build arcdebug

package arena

const debugEnabled = true
