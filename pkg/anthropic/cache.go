package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint set to a 5-minute TTL. The schema portion of the system
// prompt is identical across every attempt of a question cycle, so the
// attempts after the first hit the warm cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "5m",
			},
		},
	}
}
