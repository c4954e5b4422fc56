// Package ranking scores and orders transformation candidates with a learned
// state/action value table. Selection is epsilon-greedy and values move with
// a one-step temporal-difference update, so repeated observations of the same
// query converge toward the candidates that earn the highest rewards.
package ranking
