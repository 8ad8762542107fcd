package streaming

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/benoitkugler/pdfcore/model"
)

func samplePDF() []byte {
	content := []byte("BT /F1 12 Tf (Hello) Tj ET")
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.6\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	off3 := buf.Len()
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R >>\nendobj\n")
	off4 := buf.Len()
	fmt.Fprintf(&buf, "4 0 obj\n<< /Length %d >>\nstream\n", len(content))
	buf.Write(content)
	buf.WriteString("\nendstream\nendobj\n")
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 5\n0000000000 65535 f \n")
	for _, off := range []int{off1, off2, off3, off4} {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 5 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

func TestEvents(t *testing.T) {
	var (
		sawStart   bool
		version    string
		objects    []model.ObjIndirectRef
		pages      []Page
		startxrefs []int64
		body       []byte
	)
	err := Process(bytes.NewReader(samplePDF()), func(ev Event) Action {
		switch ev := ev.(type) {
		case Start:
			sawStart = true
		case Header:
			version = ev.Version
		case IndirectObject:
			if stream, ok := ev.Object.(model.ObjStream); ok {
				if !ev.BodyLoaded {
					return Continue // ask for the body
				}
				body = stream.Content
			}
			objects = append(objects, ev.Ref)
		case Page:
			pages = append(pages, ev)
		case EndOfFile:
			startxrefs = append(startxrefs, ev.StartXref)
		}
		return Continue
	})
	if err != nil {
		t.Fatal(err)
	}

	if !sawStart {
		t.Error("missing Start event")
	}
	if version != "1.6" {
		t.Errorf("unexpected version %q", version)
	}
	if len(objects) != 4 {
		t.Fatalf("expected 4 objects, got %v", objects)
	}
	for i, ref := range objects {
		if ref.ObjectNumber != i+1 {
			t.Errorf("unexpected object %v", ref)
		}
	}
	if len(pages) != 1 {
		t.Fatalf("expected one page event, got %d", len(pages))
	}
	if mb := pages[0].MediaBox; mb == nil || mb.Urx != 612 || mb.Ury != 792 {
		t.Errorf("unexpected bounds %+v", pages[0].MediaBox)
	}
	if string(body) != "BT /F1 12 Tf (Hello) Tj ET" {
		t.Errorf("unexpected stream body %q", body)
	}
	if len(startxrefs) != 1 || startxrefs[0] == 0 {
		t.Errorf("unexpected startxref events %v", startxrefs)
	}
}

func TestSkipStreamBody(t *testing.T) {
	var loaded int
	err := Process(bytes.NewReader(samplePDF()), func(ev Event) Action {
		if obj, ok := ev.(IndirectObject); ok {
			if _, isStream := obj.Object.(model.ObjStream); isStream && !obj.BodyLoaded {
				return Skip // never materialize the body
			}
			if obj.BodyLoaded {
				if stream, ok := obj.Object.(model.ObjStream); ok && stream.Content != nil {
					loaded++
				}
			}
		}
		return Continue
	})
	if err != nil {
		t.Fatal(err)
	}
	if loaded != 0 {
		t.Errorf("a skipped body was materialized %d times", loaded)
	}
}

func TestStop(t *testing.T) {
	count := 0
	err := Process(bytes.NewReader(samplePDF()), func(ev Event) Action {
		if _, ok := ev.(IndirectObject); ok {
			count++
			return Stop
		}
		return Continue
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected to stop after one object, got %d", count)
	}
}

func TestStreamingToleratesMissingTail(t *testing.T) {
	full := samplePDF()
	damaged := full[:bytes.Index(full, []byte("xref"))]

	var objects int
	err := Process(bytes.NewReader(damaged), func(ev Event) Action {
		if obj, ok := ev.(IndirectObject); ok && obj.BodyLoaded {
			objects++
		}
		return Continue
	})
	if err != nil {
		t.Fatal(err)
	}
	if objects != 4 {
		t.Errorf("expected 4 objects without the index, got %d", objects)
	}
}
