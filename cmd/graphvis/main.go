// Command graphvis renders a residual's canonical Signature to a PNG
// graph via go-graphviz, for visually inspecting what canonicalization
// and kernel compilation actually produce.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"

	"github.com/goccy/go-graphviz"

	"github.com/mfagerlund/scalarautograd/src/autograd"
	"github.com/mfagerlund/scalarautograd/src/signature"
)

func main() {
	out := flag.String("out", "graph.png", "output image path")
	flag.Parse()

	sig := buildSampleSignature()
	dot := sig.DOT()

	ctx := context.Background()
	g, err := graphviz.New(ctx)
	if err != nil {
		panic(err)
	}
	defer g.Close()

	graph, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		panic(err)
	}
	defer graph.Close()

	// 1. write encoded PNG data to buffer
	var buf bytes.Buffer
	if err := g.Render(ctx, graph, graphviz.PNG, &buf); err != nil {
		panic(err)
	}

	// 2. write to file directly
	if err := g.RenderFilename(ctx, graph, graphviz.PNG, *out); err != nil {
		panic(err)
	}

	fmt.Printf("graphvis: wrote %s (%d bytes)\n", *out, buf.Len())
}

// buildSampleSignature canonicalizes (a + b) * c, one named parameter
// each, as a small representative residual to visualize.
func buildSampleSignature() signature.Signature {
	a := autograd.NewNamedParam("a", 1)
	b := autograd.NewNamedParam("b", 2)
	c := autograd.NewNamedParam("c", 3)
	root := a.Add(b).Mul(c)
	sig, _ := signature.Canonicalize(root)
	return sig
}
