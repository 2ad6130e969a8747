// Package analysis implements the statistical computations behind each job
// kind: per-state means, rankings, deviations from the national mean and
// stratified means over the nutrition/obesity survey dataset. The Registry
// maps job kinds to analyses and is the compute function handed to the
// worker pool.
package analysis
