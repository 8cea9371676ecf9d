package structural

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

type pdfObject struct {
	Num, Gen  int
	Offset    int
	Value     any
	Stream    []byte
	HasStream bool
	InObjStm  bool
}

func (o *pdfObject) dict() pdfDict {
	if o == nil {
		return nil
	}
	d, _ := o.Value.(pdfDict)
	return d
}

// Info is the document information dictionary.
type Info struct {
	Producer     string     `json:"producer,omitempty"`
	Creator      string     `json:"creator,omitempty"`
	Title        string     `json:"title,omitempty"`
	Author       string     `json:"author,omitempty"`
	CreationDate *time.Time `json:"creation_date,omitempty"`
	ModDate      *time.Time `json:"mod_date,omitempty"`
}

// maxProblems bounds the problems kept verbatim; the rest are only counted.
const maxProblems = 100

// checkEvery is how many objects are scanned between context checks.
const checkEvery = 64

type pdfFile struct {
	ctx     context.Context
	err     error
	raw     []byte
	version string
	objects map[int]*pdfObject
	// every definition in file order, including superseded ones
	defs     []*pdfObject
	trailers []pdfDict

	startXRefs   int
	eofMarkers   int
	xrefSections int
	linearized   bool
	encrypted    bool
	objStreams   int
	objStmFailed bool

	info          Info
	declaredPages int // -1 when the page tree root is unreadable
	pageObjects   int
	pages         []int // page object numbers in page-tree order
	hasFonts      bool
	hasTextOps    bool
	imageObjects  []int
	imagePage     map[int]int

	problems     []string
	problemTotal int

	endobjs nextMatch
	headers nextMatch
}

// nextMatch finds the next occurrence of a pattern at or after a position.
// A result is reused while it still lies ahead, so a scan that only moves
// forward searches each byte once.
type nextMatch struct {
	find     func(from int) int
	from, at int
	valid    bool
}

func (n *nextMatch) after(pos int) int {
	if n.valid && pos >= n.from && (n.at < 0 || pos <= n.at) {
		return n.at
	}
	n.from, n.at, n.valid = pos, n.find(pos), true
	return n.at
}

var (
	objHeader  = regexp.MustCompile(`(?:^|[^0-9])(\d{1,10})[ \t\r\n\f\x00]+(\d{1,5})[ \t\r\n\f\x00]+obj\b`)
	xrefKw     = regexp.MustCompile(`(?:^|[\r\n])[ \t]*xref[ \t]*[\r\n]`)
	pdfVersion = regexp.MustCompile(`%PDF-(\d\.\d)`)
	textOps    = regexp.MustCompile(`\bBT\b[\s\S]*?(?:Tj|TJ|'|")`)
)

func (f *pdfFile) problem(format string, args ...any) {
	f.problemTotal++
	if len(f.problems) < maxProblems {
		f.problems = append(f.problems, fmt.Sprintf(format, args...))
	}
}

// stopped reports whether the parse context has ended, keeping its error.
func (f *pdfFile) stopped() bool {
	if f.err == nil {
		f.err = f.ctx.Err()
	}
	return f.err != nil
}

func (f *pdfFile) resolve(v any) any {
	for i := 0; i < 8; i++ {
		r, ok := v.(pdfRef)
		if !ok {
			return v
		}
		o := f.objects[r.Num]
		if o == nil {
			return nil
		}
		v = o.Value
	}
	return nil
}

func (f *pdfFile) resolveDict(v any) pdfDict {
	d, _ := f.resolve(v).(pdfDict)
	return d
}

// parsePDF scans the file body. Damage never fails it: every recoverable
// problem is recorded so the analyzer can report a partial parse. It only
// returns an error when ctx ends.
func parsePDF(ctx context.Context, raw []byte) (*pdfFile, error) {
	f := &pdfFile{
		ctx:           ctx,
		raw:           raw,
		objects:       make(map[int]*pdfObject),
		declaredPages: -1,
		imagePage:     make(map[int]int),
	}
	f.endobjs.find = func(from int) int {
		if i := bytes.Index(raw[from:], []byte("endobj")); i >= 0 {
			return from + i
		}
		return -1
	}
	f.headers.find = func(from int) int {
		if m := objHeader.FindIndex(raw[from:]); m != nil {
			return from + m[0]
		}
		return -1
	}
	head := raw
	if len(head) > 1024 {
		head = head[:1024]
	}
	if m := pdfVersion.FindSubmatch(head); m != nil {
		f.version = string(m[1])
	}

	f.scanObjects()
	f.scanObjectStreams()
	if f.stopped() {
		return nil, f.err
	}
	f.scanTrailers()

	f.startXRefs = bytes.Count(raw, []byte("startxref"))
	f.eofMarkers = bytes.Count(raw, []byte("%%EOF"))
	f.xrefSections += len(xrefKw.FindAllIndex(raw, -1))
	if f.startXRefs == 0 {
		f.problem("no startxref marker")
	}
	if len(f.trailers) == 0 {
		f.problem("no trailer dictionary")
	}

	if first := f.firstObject(); first != nil {
		if _, ok := first.dict()["Linearized"]; ok {
			f.linearized = true
		}
	}

	f.readInfo()
	f.walkPages()
	f.scanResources()
	if f.stopped() {
		return nil, f.err
	}
	return f, nil
}

func (f *pdfFile) firstObject() *pdfObject {
	var first *pdfObject
	for _, o := range f.defs {
		if !o.InObjStm && (first == nil || o.Offset < first.Offset) {
			first = o
		}
	}
	return first
}

func (f *pdfFile) scanObjects() {
	raw := f.raw
	pos := 0
	for n := 0; pos < len(raw); n++ {
		if n%checkEvery == 0 && f.stopped() {
			return
		}
		m := objHeader.FindSubmatchIndex(raw[pos:])
		if m == nil {
			return
		}
		start := pos + m[2]
		num, _ := strconv.Atoi(string(raw[pos+m[2] : pos+m[3]]))
		gen, _ := strconv.Atoi(string(raw[pos+m[4] : pos+m[5]]))
		bodyAt := pos + m[1]

		o := &pdfObject{Num: num, Gen: gen, Offset: start}
		next, err := f.readObject(o, bodyAt)
		if err != nil {
			f.problem("object %d %d: %v", num, gen, err)
			pos = bodyAt
			continue
		}
		f.defs = append(f.defs, o)
		f.objects[num] = o
		pos = next
	}
}

// readObject parses an object body starting right after "obj" and returns
// the offset following its endobj keyword.
func (f *pdfFile) readObject(o *pdfObject, at int) (int, error) {
	raw := f.raw
	l := &lexer{buf: raw, pos: at}
	v, err := l.value(0)
	if err != nil {
		return 0, err
	}
	o.Value = v

	l.skipSpace()
	if bytes.HasPrefix(raw[l.pos:], []byte("stream")) {
		if err := f.readStream(o, l); err != nil {
			return 0, err
		}
	}

	l.skipSpace()
	if bytes.HasPrefix(raw[l.pos:], []byte("endobj")) {
		return l.pos + len("endobj"), nil
	}
	// tolerate junk before endobj, as long as no other object starts first
	end := f.endobjs.after(l.pos)
	if end < 0 {
		f.problem("object %d %d: missing endobj", o.Num, o.Gen)
		return l.pos, nil
	}
	if h := f.headers.after(l.pos); h >= 0 && h < end {
		f.problem("object %d %d: missing endobj", o.Num, o.Gen)
		return l.pos, nil
	}
	return end + len("endobj"), nil
}

func (f *pdfFile) readStream(o *pdfObject, l *lexer) error {
	raw := f.raw
	start := l.pos + len("stream")
	if start < len(raw) && raw[start] == '\r' {
		start++
	}
	if start < len(raw) && raw[start] == '\n' {
		start++
	}
	o.HasStream = true

	if n, ok := o.dict().int("Length"); ok && n >= 0 && n <= len(raw)-start {
		after := &lexer{buf: raw, pos: start + n}
		after.skipSpace()
		if bytes.HasPrefix(raw[after.pos:], []byte("endstream")) {
			o.Stream = raw[start : start+n]
			l.pos = after.pos + len("endstream")
			return nil
		}
	}
	// indirect or wrong /Length: fall back to the endstream keyword
	end := bytes.Index(raw[start:], []byte("endstream"))
	if end < 0 {
		o.Stream = raw[start:]
		l.pos = len(raw)
		return fmt.Errorf("unterminated stream")
	}
	data := raw[start : start+end]
	data = bytes.TrimSuffix(data, []byte("\n"))
	data = bytes.TrimSuffix(data, []byte("\r"))
	o.Stream = data
	l.pos = start + end + len("endstream")
	return nil
}

// scanObjectStreams loads compressed objects, which never override a
// direct definition of the same number.
func (f *pdfFile) scanObjectStreams() {
	var stms []*pdfObject
	for _, o := range f.defs {
		if o.dict().name("Type") == "ObjStm" && o.HasStream {
			stms = append(stms, o)
		}
	}
	f.objStreams = len(stms)
	for _, s := range stms {
		if f.stopped() {
			return
		}
		d := s.dict()
		n, _ := d.int("N")
		first, _ := d.int("First")
		data, err := decodeStream(s)
		if err != nil {
			f.objStmFailed = true
			f.problem("object stream %d: cannot decode: %v", s.Num, err)
			continue
		}
		if first < 0 || first > len(data) {
			f.objStmFailed = true
			f.problem("object stream %d: /First %d outside the %d decoded bytes", s.Num, first, len(data))
			continue
		}
		hl := &lexer{buf: data[:first]}
		for i := 0; i < n; i++ {
			nv, err1 := hl.value(0)
			ov, err2 := hl.value(0)
			num, ok1 := nv.(float64)
			off, ok2 := ov.(float64)
			if err1 != nil || err2 != nil || !ok1 || !ok2 {
				f.objStmFailed = true
				f.problem("object stream %d: bad header", s.Num)
				break
			}
			if _, exists := f.objects[int(num)]; exists {
				continue
			}
			if off < 0 || off >= float64(len(data)-first) {
				f.problem("object %d in stream %d: offset %v out of range", int(num), s.Num, off)
				continue
			}
			at := first + int(off)
			vl := &lexer{buf: data, pos: at}
			v, err := vl.value(0)
			if err != nil {
				f.problem("object %d in stream %d: %v", int(num), s.Num, err)
				continue
			}
			o := &pdfObject{Num: int(num), Offset: s.Offset, Value: v, InObjStm: true}
			f.defs = append(f.defs, o)
			f.objects[o.Num] = o
		}
	}
}

func (f *pdfFile) scanTrailers() {
	type located struct {
		off int
		d   pdfDict
	}
	var found []located
	kw := []byte("trailer")
	for pos := 0; ; {
		i := bytes.Index(f.raw[pos:], kw)
		if i < 0 {
			break
		}
		at := pos + i + len(kw)
		l := &lexer{buf: f.raw, pos: at}
		if v, err := l.value(0); err == nil {
			if d, ok := v.(pdfDict); ok {
				found = append(found, located{off: at, d: d})
			}
		} else {
			f.problem("trailer at %d: %v", at, err)
		}
		pos = at
	}
	for _, o := range f.defs {
		if o.dict().name("Type") == "XRef" {
			f.xrefSections++
			found = append(found, located{off: o.Offset, d: o.dict()})
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].off < found[j].off })
	for _, t := range found {
		f.trailers = append(f.trailers, t.d)
		if _, ok := t.d["Encrypt"]; ok {
			f.encrypted = true
		}
	}
}

// trailerKey returns the value of key from the newest trailer that has it.
func (f *pdfFile) trailerKey(key string) any {
	for i := len(f.trailers) - 1; i >= 0; i-- {
		if v, ok := f.trailers[i][key]; ok {
			return v
		}
	}
	return nil
}

func (f *pdfFile) readInfo() {
	d := f.resolveDict(f.trailerKey("Info"))
	if d == nil {
		return
	}
	f.info = Info{
		Producer: strings.TrimSpace(d.str("Producer")),
		Creator:  strings.TrimSpace(d.str("Creator")),
		Title:    d.str("Title"),
		Author:   d.str("Author"),
	}
	if t, ok := parsePDFDate(d.str("CreationDate")); ok {
		f.info.CreationDate = &t
	}
	if t, ok := parsePDFDate(d.str("ModDate")); ok {
		f.info.ModDate = &t
	}
}

func (f *pdfFile) walkPages() {
	for _, o := range f.defs {
		if f.objects[o.Num] == o && o.dict().name("Type") == "Page" {
			f.pageObjects++
		}
	}

	root := f.resolveDict(f.trailerKey("Root"))
	if root == nil {
		f.problem("document catalog not found")
		return
	}
	pagesRef := root["Pages"]
	tree := f.resolveDict(pagesRef)
	if tree == nil {
		f.problem("page tree root not found")
		return
	}
	if n, ok := tree.int("Count"); ok {
		f.declaredPages = n
	}

	seen := map[int]bool{}
	var walk func(v any, depth int)
	walk = func(v any, depth int) {
		r, ok := v.(pdfRef)
		if !ok || seen[r.Num] || depth > maxDepth {
			return
		}
		seen[r.Num] = true
		d := f.resolveDict(r)
		switch d.name("Type") {
		case "Page":
			f.pages = append(f.pages, r.Num)
		case "Pages":
			kids, _ := f.resolve(d["Kids"]).(pdfArray)
			for _, k := range kids {
				walk(k, depth+1)
			}
		}
	}
	walk(pagesRef, 0)
}

// scanResources finds fonts, text operators and image XObjects, and maps
// each image to the first page that draws it.
func (f *pdfFile) scanResources() {
	masks := map[int]bool{}
	nums := make([]int, 0, len(f.objects))
	for n := range f.objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	for _, n := range nums {
		d := f.objects[n].dict()
		if d.name("Type") == "Font" {
			f.hasFonts = true
		}
		if d.name("Subtype") == "Image" {
			for _, k := range []string{"SMask", "Mask"} {
				if r, ok := d[k].(pdfRef); ok {
					masks[r.Num] = true
				}
			}
		}
	}
	for _, n := range nums {
		o := f.objects[n]
		if o.dict().name("Subtype") == "Image" && o.HasStream && !masks[n] {
			f.imageObjects = append(f.imageObjects, n)
		}
	}

	for i, p := range f.pages {
		pd := f.resolveDict(pdfRef{Num: p})
		res := f.inheritedResources(pd)
		if fonts := f.resolveDict(res["Font"]); len(fonts) > 0 {
			f.hasFonts = true
		}
		for _, v := range f.resolveDict(res["XObject"]) {
			if r, ok := v.(pdfRef); ok {
				if _, done := f.imagePage[r.Num]; !done {
					f.imagePage[r.Num] = i + 1
				}
			}
		}
		if !f.hasTextOps {
			f.hasTextOps = f.contentHasText(pd["Contents"])
		}
	}
}

func (f *pdfFile) inheritedResources(page pdfDict) pdfDict {
	d := page
	for i := 0; d != nil && i < maxDepth; i++ {
		if res := f.resolveDict(d["Resources"]); res != nil {
			return res
		}
		d = f.resolveDict(d["Parent"])
	}
	return nil
}

func (f *pdfFile) contentHasText(contents any) bool {
	var refs []pdfRef
	if r, ok := contents.(pdfRef); ok {
		if arr, ok := f.resolve(r).(pdfArray); ok {
			contents = arr
		} else {
			refs = append(refs, r)
		}
	}
	if arr, ok := contents.(pdfArray); ok {
		for _, e := range arr {
			if r, ok := e.(pdfRef); ok {
				refs = append(refs, r)
			}
		}
	}
	for _, r := range refs {
		o := f.objects[r.Num]
		if o == nil || !o.HasStream {
			continue
		}
		data, err := decodeStream(o)
		if err != nil {
			f.problem("content stream %d: %v", r.Num, err)
			continue
		}
		if textOps.Match(data) {
			return true
		}
	}
	return false
}

// parsePDFDate parses "D:YYYYMMDDHHmmSSOHH'mm'" with every part after the
// year optional.
func parsePDFDate(s string) (time.Time, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "D:")
	n := 0
	for n < len(s) && n < 14 && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	if n < 4 || n%2 != 0 {
		return time.Time{}, false
	}
	digits := s[:n] + "0101000000"[n-4:]
	t, err := time.Parse("20060102150405", digits)
	if err != nil {
		return time.Time{}, false
	}

	tz := s[n:]
	if tz == "" || tz[0] == 'Z' {
		return t, true
	}
	sign := 1
	switch tz[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return t, true
	}
	tz = strings.NewReplacer("'", "", ":", "").Replace(tz[1:])
	var hh, mm int
	if len(tz) >= 2 {
		hh, _ = strconv.Atoi(tz[:2])
	}
	if len(tz) >= 4 {
		mm, _ = strconv.Atoi(tz[2:4])
	}
	offset := sign * (hh*3600 + mm*60)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.FixedZone("", offset)), true
}
