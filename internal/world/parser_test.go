package world

import (
	"strings"
	"testing"

	"cortex/internal/types"
)

const goSample = `package demo

type Greeter struct {
	name string
	tone string
}

func (g *Greeter) Greet(who string) string {
	return "hello " + who + ", says " + g.name + " in a " + g.tone + " tone"
}

func tiny() int { return 1 }
`

const javaSample = `package com.example.billing;

public class InvoiceService {
    private final Repository repo;

    public Invoice create(String customer, long amountCents) {
        Invoice inv = new Invoice(customer, amountCents);
        return repo.save(inv);
    }
}
`

const pySample = `class Cart:
    def total(self):
        return sum(item.price * item.qty for item in self.items)

def checkout(cart):
    return cart.total() if cart else 0
`

func TestParseGo(t *testing.T) {
	p := NewChunkParser()
	defer p.Close()

	pf, err := p.Parse("demo.go", []byte(goSample))
	if err != nil {
		t.Fatal(err)
	}
	if pf.Package != "demo" {
		t.Fatalf("package = %q", pf.Package)
	}
	if len(pf.Classes) != 1 || pf.Classes[0].Name != "Greeter" {
		t.Fatalf("classes = %+v", pf.Classes)
	}
	cls := pf.Classes[0]
	if len(cls.Fields) != 2 {
		t.Fatalf("fields = %v", cls.Fields)
	}
	if len(cls.Methods) != 1 || cls.Methods[0].Name != "Greet" {
		t.Fatalf("methods = %+v", cls.Methods)
	}
	if !strings.Contains(cls.Methods[0].Body, "hello") {
		t.Fatal("method body missing")
	}
	if len(pf.Functions) != 1 || pf.Functions[0].Name != "tiny" {
		t.Fatalf("functions = %+v", pf.Functions)
	}
}

func TestParseJava(t *testing.T) {
	p := NewChunkParser()
	defer p.Close()

	pf, err := p.Parse("InvoiceService.java", []byte(javaSample))
	if err != nil {
		t.Fatal(err)
	}
	if pf.Package != "com.example.billing" {
		t.Fatalf("package = %q", pf.Package)
	}
	if len(pf.Classes) != 1 || pf.Classes[0].Name != "InvoiceService" {
		t.Fatalf("classes = %+v", pf.Classes)
	}
	cls := pf.Classes[0]
	if len(cls.Fields) != 1 {
		t.Fatalf("fields = %v", cls.Fields)
	}
	if len(cls.Methods) != 1 || cls.Methods[0].Name != "create" {
		t.Fatalf("methods = %+v", cls.Methods)
	}
}

func TestParsePython(t *testing.T) {
	p := NewChunkParser()
	defer p.Close()

	pf, err := p.Parse("cart.py", []byte(pySample))
	if err != nil {
		t.Fatal(err)
	}
	if len(pf.Classes) != 1 || pf.Classes[0].Name != "Cart" {
		t.Fatalf("classes = %+v", pf.Classes)
	}
	if len(pf.Classes[0].Methods) != 1 || pf.Classes[0].Methods[0].Name != "total" {
		t.Fatalf("methods = %+v", pf.Classes[0].Methods)
	}
	if len(pf.Functions) != 1 || pf.Functions[0].Name != "checkout" {
		t.Fatalf("functions = %+v", pf.Functions)
	}
}

func TestParseUnsupportedExtension(t *testing.T) {
	p := NewChunkParser()
	defer p.Close()
	if _, err := p.Parse("readme.md", []byte("# hi")); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestBuildChunkDocuments(t *testing.T) {
	p := NewChunkParser()
	defer p.Close()

	pf, err := p.Parse("demo.go", []byte(goSample))
	if err != nil {
		t.Fatal(err)
	}
	docs := BuildChunkDocuments(pf)

	var overviews, methods int
	for _, d := range docs {
		switch d.ChunkType() {
		case types.ChunkClassOverview:
			overviews++
			if d.Metadata[types.MetaClass] != "Greeter" {
				t.Fatalf("overview class = %q", d.Metadata[types.MetaClass])
			}
			if !strings.Contains(d.Text, "name string") {
				t.Fatal("overview missing field")
			}
			if strings.Contains(d.Text, "hello") {
				t.Fatal("overview leaked a method body")
			}
		case types.ChunkMethodImpl:
			methods++
			if d.Metadata[types.MetaMethod] == "" {
				t.Fatal("method chunk missing method name")
			}
		}
		if d.Filename() != "demo.go" {
			t.Fatalf("filename = %q", d.Filename())
		}
	}
	if overviews != 1 {
		t.Fatalf("overviews = %d", overviews)
	}
	// tiny() is under the 50-char floor; only Greet survives.
	if methods != 1 {
		t.Fatalf("method chunks = %d", methods)
	}
}
