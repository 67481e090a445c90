package world

import (
	"testing"
)

func TestGraphBuilderTwoPass(t *testing.T) {
	b := NewGraphBuilder()

	svc := &ParsedFile{Path: "UserService.java", Classes: []ParsedClass{{Name: "UserService"}}}
	repo := &ParsedFile{Path: "UserRepository.java", Classes: []ParsedClass{{Name: "UserRepository"}}}
	b.Register(svc, []byte("class UserService { UserRepository repo; }"))
	b.Register(repo, []byte("class UserRepository { }"))

	g := b.Build()
	fwd := g.ForwardDeps("UserService.java")
	if len(fwd) != 1 || fwd[0] != "UserRepository.java" {
		t.Fatalf("forward deps = %v", fwd)
	}
	rev := g.ReverseDeps("UserRepository.java")
	if len(rev) != 1 || rev[0] != "UserService.java" {
		t.Fatalf("reverse deps = %v", rev)
	}
}

func TestGraphBuilderNoSelfEdges(t *testing.T) {
	b := NewGraphBuilder()
	pf := &ParsedFile{Path: "Solo.java", Classes: []ParsedClass{{Name: "Solo"}}}
	b.Register(pf, []byte("class Solo { Solo next; }"))

	g := b.Build()
	if deps := g.ForwardDeps("Solo.java"); len(deps) != 0 {
		t.Fatalf("self edge leaked: %v", deps)
	}
}

func TestGraphBuilderRemove(t *testing.T) {
	b := NewGraphBuilder()
	a := &ParsedFile{Path: "A.java", Classes: []ParsedClass{{Name: "A"}}}
	c := &ParsedFile{Path: "C.java", Classes: []ParsedClass{{Name: "C"}}}
	b.Register(a, []byte("class A { C helper; }"))
	b.Register(c, []byte("class C { }"))
	b.Remove("C.java")

	g := b.Build()
	if deps := g.ForwardDeps("A.java"); len(deps) != 0 {
		t.Fatalf("edge to removed file survived: %v", deps)
	}
}

func TestSimilarityGraphEdges(t *testing.T) {
	g := NewSimilarityGraph()
	g.Upsert("a.go", "cache eviction policy for the session store")
	g.Upsert("b.go", "cache eviction policy for the token store")
	g.Upsert("c.go", "renders invoices as printable documents")

	if ns := g.Neighbors("a.go"); len(ns) != 1 || ns[0] != "b.go" {
		t.Fatalf("a.go neighbors = %v", ns)
	}
	if ns := g.Neighbors("c.go"); len(ns) != 0 {
		t.Fatalf("c.go neighbors = %v", ns)
	}
}

func TestSimilarityGraphUpsertRecomputes(t *testing.T) {
	g := NewSimilarityGraph()
	g.Upsert("a.go", "cache eviction policy for the session store")
	g.Upsert("b.go", "cache eviction policy for the token store")

	g.Upsert("b.go", "renders invoices as printable documents")
	if ns := g.Neighbors("a.go"); len(ns) != 0 {
		t.Fatalf("stale edge after upsert: %v", ns)
	}
}

func TestSimilarityGraphRemove(t *testing.T) {
	g := NewSimilarityGraph()
	g.Upsert("a.go", "cache eviction policy for the session store")
	g.Upsert("b.go", "cache eviction policy for the token store")
	g.Remove("b.go")

	if ns := g.Neighbors("a.go"); len(ns) != 0 {
		t.Fatalf("edge to removed node survived: %v", ns)
	}
	if g.Size() != 1 {
		t.Fatalf("size = %d", g.Size())
	}
}

func TestJaccard(t *testing.T) {
	a := wordSet("alpha beta gamma")
	b := wordSet("alpha beta delta")
	if got := jaccard(a, b); got != 0.5 {
		t.Fatalf("jaccard = %f, want 0.5", got)
	}
	if got := jaccard(nil, nil); got != 0 {
		t.Fatalf("jaccard of empty sets = %f", got)
	}
}
