package core

import "github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"

// TrimToBudget walks ranked candidates and accepts each one whose tokens still fit
// into maxTokens, skipping (not stopping at) those that would overflow, until topK
// results are accepted. maxTokens <= 0 disables the budget.
func TrimToBudget(candidates []models.SearchResult, topK, maxTokens int) []models.SearchResult {
	if topK <= 0 {
		return []models.SearchResult{}
	}
	out := make([]models.SearchResult, 0, topK)
	used := 0
	for _, c := range candidates {
		if len(out) == topK {
			break
		}
		if maxTokens > 0 && used+c.TokenCount > maxTokens {
			continue
		}
		used += c.TokenCount
		out = append(out, c)
	}
	return out
}
