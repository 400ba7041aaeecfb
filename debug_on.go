//go:build arcdebug

package arc

const debugEnabled = true
