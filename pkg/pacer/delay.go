package pacer

import (
	"math/rand/v2"
	"time"
)

// Profile is the pacing for one class: delay = Base + U(-Variance, +Variance),
// floored at zero.
type Profile struct {
	Base     time.Duration
	Variance time.Duration
}

var (
	// CodeProfile is the default pacing for fenced code.
	CodeProfile = Profile{Base: 3 * time.Millisecond, Variance: 2 * time.Millisecond}

	// ProseProfile is the default pacing for prose and the fallback for
	// everything else.
	ProseProfile = Profile{Base: 30 * time.Millisecond, Variance: 10 * time.Millisecond}
)

// Jitter returns an offset in [-variance, +variance].
type Jitter func(variance time.Duration) time.Duration

// UniformJitter draws a whole number of milliseconds uniformly from
// [-variance, +variance]. Variances below one millisecond yield zero.
func UniformJitter(variance time.Duration) time.Duration {
	ms := int64(variance / time.Millisecond)
	if ms <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(2*ms+1)-ms) * time.Millisecond
}

// FixedJitter always returns offset, clamped to [-variance, +variance].
func FixedJitter(offset time.Duration) Jitter {
	return func(variance time.Duration) time.Duration {
		return min(max(offset, -variance), variance)
	}
}

// Calculator computes reveal delays per class.
type Calculator struct {
	profiles map[Class]Profile
	jitter   Jitter
}

// CalculatorOption configures a Calculator.
type CalculatorOption func(*Calculator)

// WithProfile overrides the profile used for class.
func WithProfile(class Class, p Profile) CalculatorOption {
	return func(c *Calculator) {
		c.profiles[class] = p
	}
}

// WithJitter replaces the random source.
func WithJitter(j Jitter) CalculatorOption {
	return func(c *Calculator) {
		c.jitter = j
	}
}

// NewCalculator returns a Calculator with the code and prose defaults.
// ClassOther uses the prose profile unless overridden.
func NewCalculator(opts ...CalculatorOption) *Calculator {
	c := &Calculator{
		profiles: map[Class]Profile{
			ClassCode:  CodeProfile,
			ClassProse: ProseProfile,
			ClassOther: ProseProfile,
		},
		jitter: UniformJitter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Profile returns the profile in use for class.
func (c *Calculator) Profile(class Class) Profile {
	if p, ok := c.profiles[class]; ok {
		return p
	}
	return c.profiles[ClassProse]
}

// Delay returns the delay before revealing text of the given class.
func (c *Calculator) Delay(class Class) time.Duration {
	p := c.Profile(class)
	var offset time.Duration
	if p.Variance > 0 {
		offset = c.jitter(p.Variance)
	}
	return max(0, p.Base+offset)
}
