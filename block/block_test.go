package block

import "testing"

func TestBlockStampValidateRoundTrip(t *testing.T) {
	b := NewBlock()
	for i := range b {
		b[i] = byte(i)
	}
	if err := b.Stamp(); err != nil {
		t.Fatal(err)
	}
	ok, err := ValidateBlock(b)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("freshly stamped block failed validation")
	}

	b.Payload()[10] ^= 0xFF
	ok, err = ValidateBlock(b)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("mutated block still validated")
	}
}

func TestBlockStripeAndShardFields(t *testing.T) {
	b := NewBlock()
	b.SetStripeNumber(0xFFFFFFFFFFFFFF) // max 56-bit value
	if got := b.StripeNumber(); got != 0xFFFFFFFFFFFFFF {
		t.Fatalf("StripeNumber() = %#x, want %#x", got, 0xFFFFFFFFFFFFFF)
	}
	b.SetShardID(200)
	if b.ShardID() != 200 {
		t.Fatalf("ShardID() = %d, want 200", b.ShardID())
	}
	b.SetSequenceNumber(12345)
	if b.SequenceNumber() != 12345 {
		t.Fatalf("SequenceNumber() = %d, want 12345", b.SequenceNumber())
	}
}

func TestStripeNumberOverflowPanics(t *testing.T) {
	b := NewBlock()
	defer func() {
		if recover() == nil {
			t.Fatal("SetStripeNumber with >56 bits did not panic")
		}
	}()
	b.SetStripeNumber(1 << 57)
}

func TestHeaderStampValidateRoundTrip(t *testing.T) {
	h := NewHeader()
	h.SetVersionNumber(CurrentVersion)
	h.SetVolumePrefixID(MinVolumePrefixID)
	if err := h.SetShardIDs([]byte{0, 1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := h.Stamp(); err != nil {
		t.Fatal(err)
	}
	if err := ValidateHeader(h); err != nil {
		t.Fatalf("freshly stamped header failed validation: %v", err)
	}

	h.SetVersionNumber(2)
	if err := ValidateHeader(h); err != ErrBadVersion {
		t.Fatalf("ValidateHeader after version bump = %v, want ErrBadVersion", err)
	}
}

func TestHeaderRejectsLowVolumePrefixID(t *testing.T) {
	h := NewHeader()
	h.SetVersionNumber(CurrentVersion)
	h.SetVolumePrefixID(1)
	h.SetShardIDs([]byte{0})
	h.Stamp()
	if err := ValidateHeader(h); err != ErrBadVolumePrefixID {
		t.Fatalf("ValidateHeader = %v, want ErrBadVolumePrefixID", err)
	}
}

func TestKBlocksInStripe(t *testing.T) {
	h := NewHeader()
	if err := h.SetShardIDs([]byte{0, 1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if k := KBlocksInStripe(h); k != 5 {
		t.Fatalf("KBlocksInStripe() = %d, want 5", k)
	}

	h2 := NewHeader()
	if err := h2.SetShardIDs([]byte{3}); err != nil {
		t.Fatal(err)
	}
	if k := KBlocksInStripe(h2); k != 1 {
		t.Fatalf("KBlocksInStripe() = %d, want 1", k)
	}

	h3 := NewHeader()
	if err := h3.SetShardIDs([]byte{0, 1, 2, 3, 4, 5, 6, 7}); err != nil {
		t.Fatal(err)
	}
	if k := KBlocksInStripe(h3); k != 8 {
		t.Fatalf("KBlocksInStripe() = %d, want 8", k)
	}
}

func TestOffsetToBlock(t *testing.T) {
	h := NewHeader()
	if err := h.SetShardIDs([]byte{0, 1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	// K=4; stripe 0 shard 2 -> offset 4096*4*0 + 4096*2
	got := OffsetToBlock(h, 0, 2)
	want := int64(Size) * 2
	if got != want {
		t.Fatalf("OffsetToBlock(stripe0,shard2) = %d, want %d", got, want)
	}
	got = OffsetToBlock(h, 3, 1)
	want = int64(Size)*4*3 + int64(Size)*1
	if got != want {
		t.Fatalf("OffsetToBlock(stripe3,shard1) = %d, want %d", got, want)
	}
}

func TestOffsetToBlockUnknownShardPanics(t *testing.T) {
	h := NewHeader()
	h.SetShardIDs([]byte{0, 1, 2, 3})
	defer func() {
		if recover() == nil {
			t.Fatal("OffsetToBlock with unknown shard id did not panic")
		}
	}()
	OffsetToBlock(h, 0, 200)
}

func TestStripeShardFromOffsetInverseOfOffsetToBlock(t *testing.T) {
	h := NewHeader()
	h.SetShardIDs([]byte{10, 20, 30, 40})
	for stripe := uint64(0); stripe < 5; stripe++ {
		for _, id := range []byte{10, 20, 30, 40} {
			off := OffsetToBlock(h, stripe, id)
			gotStripe, gotID, err := StripeShardFromOffset(h, off)
			if err != nil {
				t.Fatal(err)
			}
			if gotStripe != stripe || gotID != id {
				t.Fatalf("StripeShardFromOffset(%d) = (%d,%d), want (%d,%d)", off, gotStripe, gotID, stripe, id)
			}
		}
	}
}
