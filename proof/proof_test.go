package proof

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestProveAndVerifyConservation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping groth16 setup in short mode")
	}
	prover, err := NewProver(4)
	if err != nil {
		t.Fatalf("NewProver: %v", err)
	}

	quantities := []*uint256.Int{
		uint256.NewInt(60),
		uint256.NewInt(40),
	}
	supply := uint256.NewInt(100)

	proof, err := prover.Prove(quantities, supply)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if err := prover.Verify(proof); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestProveRejectsBrokenConservation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping groth16 setup in short mode")
	}
	prover, err := NewProver(2)
	if err != nil {
		t.Fatalf("NewProver: %v", err)
	}

	quantities := []*uint256.Int{
		uint256.NewInt(60),
		uint256.NewInt(40),
	}
	if _, err := prover.Prove(quantities, uint256.NewInt(99)); err == nil {
		t.Error("proof generated for supply that does not match the backing sum")
	}
}

func TestVerifyRejectsWrongPublicInput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping groth16 setup in short mode")
	}
	prover, err := NewProver(2)
	if err != nil {
		t.Fatalf("NewProver: %v", err)
	}

	proof, err := prover.Prove([]*uint256.Int{uint256.NewInt(100)}, uint256.NewInt(100))
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	proof.Supply = uint256.NewInt(101)
	if err := prover.Verify(proof); err == nil {
		t.Error("proof verified against a supply it was not generated for")
	}
}

func TestNewProverRejectsNonPositiveSlots(t *testing.T) {
	if _, err := NewProver(0); err == nil {
		t.Error("prover created with zero slots")
	}
}

func TestProveRejectsTooManyQuantities(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping groth16 setup in short mode")
	}
	prover, err := NewProver(1)
	if err != nil {
		t.Fatalf("NewProver: %v", err)
	}
	quantities := []*uint256.Int{uint256.NewInt(1), uint256.NewInt(2)}
	if _, err := prover.Prove(quantities, uint256.NewInt(3)); err == nil {
		t.Error("proof generated with more quantities than circuit slots")
	}
}
