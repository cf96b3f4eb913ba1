// Package scorer converts initial normalized scores into final normalized
// scores (FNS) by percentile banding.
//
// Results are first ordered ascending by initial score (ties broken by id so
// the output is reproducible), then AssignFinalScore walks the sequence from
// the top and places each index in band 4, 3, 2, 1 or 0. The cut counts are
// floor(f * last) with last = n-1, so the highest scoring result always lands
// in band 4, even for a single student.
package scorer
