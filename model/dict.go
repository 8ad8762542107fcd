package model

import "strings"

// ObjDict represents a PDF dictionary object.
// Keys are unique names; the insertion order is preserved, so that
// writing the same dictionary twice yields the same bytes.
type ObjDict struct {
	keys   []Name
	values map[Name]Object
}

// NewDict returns an empty, ready to use dictionary.
func NewDict() *ObjDict {
	return &ObjDict{values: make(map[Name]Object)}
}

// Get returns the value associated with `key`, or nil if absent.
// Note that a present null value and a missing key are equivalent
// in PDF files, but are distinguished here.
func (d *ObjDict) Get(key Name) Object {
	if d == nil {
		return nil
	}
	return d.values[key]
}

// Set inserts or replaces the value for `key`.
// A new key is appended after the existing ones.
func (d *ObjDict) Set(key Name, value Object) {
	if _, has := d.values[key]; !has {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Delete removes `key` and its value, preserving the order
// of the remaining keys.
func (d *ObjDict) Delete(key Name) {
	if _, has := d.values[key]; !has {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the dictionary keys, in insertion order.
// The returned slice is owned by the dictionary.
func (d *ObjDict) Keys() []Name {
	if d == nil {
		return nil
	}
	return d.keys
}

// Len returns the number of entries.
func (d *ObjDict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

func (d *ObjDict) Clone() Object {
	out := &ObjDict{
		keys:   append([]Name(nil), d.keys...),
		values: make(map[Name]Object, len(d.values)),
	}
	for k, v := range d.values {
		out.values[k] = v.Clone()
	}
	return out
}

func (d *ObjDict) Write(w PDFWritter, context Reference) string {
	chunks := make([]string, 0, 2*d.Len())
	for _, k := range d.keys {
		chunks = append(chunks, k.String(), d.values[k].Write(w, context))
	}
	return "<<" + strings.Join(chunks, " ") + ">>"
}
