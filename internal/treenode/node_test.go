package treenode

import (
	"reflect"
	"testing"
)

func TestKeyRoundTrip(t *testing.T) {
	cases := []Key{
		{Prefix: 0, Mode: ModeItem, Item: 0},
		{Prefix: 7, Mode: ModeTree, Item: 42},
		{Prefix: 65535, Mode: ModeMetadata, Item: VersionItem},
		{Prefix: 3, Mode: ModeUpdated, Item: 0xFFFFFFFF},
	}
	for _, k := range cases {
		enc := Encode(k)
		if len(enc) != KeyLen {
			t.Fatalf("Encode(%v) length = %d, want %d", k, len(enc), KeyLen)
		}
		got, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got != k {
			t.Errorf("round trip = %+v, want %+v", got, k)
		}
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Error("Decode(short key) = nil error, want error")
	}
}

func TestKeyOrderingGroupsByPrefixThenMode(t *testing.T) {
	a := Encode(Key{Prefix: 1, Mode: ModeItem, Item: 5})
	b := Encode(Key{Prefix: 1, Mode: ModeTree, Item: 0})
	c := Encode(Key{Prefix: 2, Mode: ModeItem, Item: 0})
	if !(lessBytes(a, b) && lessBytes(b, c)) {
		t.Errorf("expected a < b < c under byte order, got a=%v b=%v c=%v", a, b, c)
	}
}

func lessBytes(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func TestLeafRoundTrip(t *testing.T) {
	header := []byte{1, 2, 3, 4}
	vector := []byte{5, 6, 7, 8, 9, 10}
	enc := EncodeLeaf(header, vector)
	leaf, err := DecodeLeaf(enc, len(header))
	if err != nil {
		t.Fatalf("DecodeLeaf: %v", err)
	}
	if !reflect.DeepEqual(leaf.Header, header) || !reflect.DeepEqual(leaf.Vector, vector) {
		t.Errorf("DecodeLeaf = %+v", leaf)
	}
}

func TestDescendantsRoundTrip(t *testing.T) {
	items := []uint32{3, 1, 4, 1, 5, 9}
	enc := EncodeDescendants(items)
	node, err := DecodeTreeNode(enc, 0)
	if err != nil {
		t.Fatalf("DecodeTreeNode: %v", err)
	}
	if node.Kind != KindDescendants {
		t.Fatalf("Kind = %v, want KindDescendants", node.Kind)
	}
	if !reflect.DeepEqual(node.Descendants, items) {
		t.Errorf("Descendants = %v, want %v", node.Descendants, items)
	}
}

func TestSplitPlaneRoundTripWithNormal(t *testing.T) {
	header := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	normal := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	enc := EncodeSplit(header, normal, 10, 20)
	node, err := DecodeTreeNode(enc, len(header))
	if err != nil {
		t.Fatalf("DecodeTreeNode: %v", err)
	}
	if node.Kind != KindSplit {
		t.Fatalf("Kind = %v, want KindSplit", node.Kind)
	}
	if !reflect.DeepEqual(node.Split.Header, header) {
		t.Errorf("Header = %v, want %v", node.Split.Header, header)
	}
	if !reflect.DeepEqual(node.Split.Normal, normal) {
		t.Errorf("Normal = %v, want %v", node.Split.Normal, normal)
	}
	if node.Split.Left != 10 || node.Split.Right != 20 {
		t.Errorf("Left/Right = %d/%d, want 10/20", node.Split.Left, node.Split.Right)
	}
}

func TestSplitPlaneRoundTripDegenerate(t *testing.T) {
	// A degenerate split stores neither header nor normal, regardless of
	// the metric's header length; any header handed to EncodeSplit
	// alongside an absent normal is dropped.
	for _, headerLen := range []int{0, 4, 8} {
		enc := EncodeSplit(make([]byte, headerLen), nil, 1, 2)
		if len(enc) != 10 {
			t.Fatalf("headerLen %d: encoded length = %d, want 10", headerLen, len(enc))
		}
		node, err := DecodeTreeNode(enc, headerLen)
		if err != nil {
			t.Fatalf("headerLen %d: DecodeTreeNode: %v", headerLen, err)
		}
		if len(node.Split.Normal) != 0 || len(node.Split.Header) != 0 {
			t.Errorf("headerLen %d: Header/Normal = %v/%v, want empty", headerLen, node.Split.Header, node.Split.Normal)
		}
		if node.Split.Left != 1 || node.Split.Right != 2 {
			t.Errorf("headerLen %d: Left/Right = %d/%d, want 1/2", headerLen, node.Split.Left, node.Split.Right)
		}
	}
}

func TestOffsetSplitChildren(t *testing.T) {
	header := []byte{1, 2, 3, 4}
	normal := []byte{9, 9, 9, 9}
	split := EncodeSplit(header, normal, 3, 7)
	degenerate := EncodeSplit(nil, nil, 0, 1)
	descendants := EncodeDescendants([]uint32{3, 7})

	node, err := DecodeTreeNode(OffsetSplitChildren(split, 100), len(header))
	if err != nil {
		t.Fatalf("DecodeTreeNode: %v", err)
	}
	if node.Split.Left != 103 || node.Split.Right != 107 {
		t.Errorf("Left/Right = %d/%d, want 103/107", node.Split.Left, node.Split.Right)
	}

	node, err = DecodeTreeNode(OffsetSplitChildren(degenerate, 5), 0)
	if err != nil {
		t.Fatalf("DecodeTreeNode(degenerate): %v", err)
	}
	if node.Split.Left != 5 || node.Split.Right != 6 {
		t.Errorf("degenerate Left/Right = %d/%d, want 5/6", node.Split.Left, node.Split.Right)
	}

	got, err := DecodeTreeNode(OffsetSplitChildren(descendants, 100), 0)
	if err != nil {
		t.Fatalf("DecodeTreeNode(descendants): %v", err)
	}
	if !reflect.DeepEqual(got.Descendants, []uint32{3, 7}) {
		t.Errorf("descendants changed under offsetting: %v", got.Descendants)
	}
}

func TestDecodeTreeNodeRejectsUnknownTag(t *testing.T) {
	if _, err := DecodeTreeNode([]byte{0xFF, 0, 0, 0}, 0); err == nil {
		t.Error("DecodeTreeNode(unknown tag) = nil error, want error")
	}
}
