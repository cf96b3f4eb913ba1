// Package compute turns one student's row of rough marks into an initial
// normalized score (INS).
//
// InitialScore is pure: it takes the square root of every mark and averages
// over the row width. Marks must be non-negative; negative input is a caller
// error and produces NaN.
package compute
