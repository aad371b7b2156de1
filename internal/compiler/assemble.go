package compiler

import "github.com/blackmichael/bluesky-thread2page/internal/domain"

// Assemble renders every post of path in root-to-leaf order, skipping the
// post whose URI equals excludeURI when it is non-empty.
func (c *Compiler) Assemble(path domain.ThreadPath, excludeURI string) Assembly {
	var acc Assembly
	for _, post := range path {
		if excludeURI != "" && post.URI == excludeURI {
			continue
		}
		acc = c.Render(post, acc)
	}
	return acc
}
