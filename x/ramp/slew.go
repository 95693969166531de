// Package ramp bounds the rate of change of an integer output level.
package ramp

import "fridgecode-go/x/mathx"

// Slew steps a level toward a target, moving at most maxStep per call.
// maxStep==0 snaps to the target. The result stays in [0..top].
func Slew(cur, target, top, maxStep uint16) uint16 {
	if target > top {
		target = top
	}
	if maxStep == 0 {
		return target
	}
	if target > cur {
		step := mathx.Min(target-cur, maxStep)
		return cur + step
	}
	step := mathx.Min(cur-target, maxStep)
	return cur - step
}
