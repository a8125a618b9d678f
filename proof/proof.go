// Package proof produces zero-knowledge proofs of the conservation
// invariant: the outstanding fungible supply of a vintage equals the sum of
// the scaled quantities of its active backing batches. The circuit keeps
// the per-batch quantities private; only the supply is public, so a ledger
// operator can attest conservation without disclosing batch composition.
package proof

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/holiman/uint256"
)

// ConservationCircuit asserts Supply == sum(Quantities). The slice length
// is fixed at compile time; pad unused slots with zero.
type ConservationCircuit struct {
	Quantities []frontend.Variable
	Supply     frontend.Variable `gnark:",public"`
}

// Define implements frontend.Circuit.
func (c *ConservationCircuit) Define(api frontend.API) error {
	sum := frontend.Variable(0)
	for _, q := range c.Quantities {
		sum = api.Add(sum, q)
	}
	api.AssertIsEqual(sum, c.Supply)
	return nil
}

// Prover compiles the conservation circuit for a fixed batch-slot count and
// generates proofs against it.
type Prover struct {
	slots int
	curve ecc.ID
	cs    constraint.ConstraintSystem
	pk    groth16.ProvingKey
	vk    groth16.VerifyingKey
}

// NewProver compiles and sets up a conservation circuit with the given
// number of batch slots.
func NewProver(slots int) (*Prover, error) {
	if slots <= 0 {
		return nil, fmt.Errorf("slots must be positive, got %d", slots)
	}
	curve := ecc.BN254
	circuit := &ConservationCircuit{Quantities: make([]frontend.Variable, slots)}

	cs, err := frontend.Compile(curve.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, fmt.Errorf("circuit compilation failed: %w", err)
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return nil, fmt.Errorf("setup failed: %w", err)
	}
	return &Prover{slots: slots, curve: curve, cs: cs, pk: pk, vk: vk}, nil
}

// Slots returns the circuit's batch-slot count.
func (p *Prover) Slots() int {
	return p.slots
}

// Proof is a generated conservation proof with its public input.
type Proof struct {
	Proof  groth16.Proof
	Supply *uint256.Int
}

// Prove generates a proof that the scaled batch quantities sum to supply.
// len(quantities) must not exceed the prover's slot count; missing slots
// are padded with zero.
func (p *Prover) Prove(quantities []*uint256.Int, supply *uint256.Int) (*Proof, error) {
	if len(quantities) > p.slots {
		return nil, fmt.Errorf("%d quantities exceed %d circuit slots", len(quantities), p.slots)
	}
	assignment := &ConservationCircuit{
		Quantities: make([]frontend.Variable, p.slots),
		Supply:     supply.ToBig(),
	}
	for i := 0; i < p.slots; i++ {
		if i < len(quantities) {
			assignment.Quantities[i] = quantities[i].ToBig()
		} else {
			assignment.Quantities[i] = big.NewInt(0)
		}
	}

	witness, err := frontend.NewWitness(assignment, p.curve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(p.cs, p.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	return &Proof{Proof: proof, Supply: new(uint256.Int).Set(supply)}, nil
}

// Verify checks a conservation proof against its public supply.
func (p *Prover) Verify(proof *Proof) error {
	assignment := &ConservationCircuit{
		Quantities: make([]frontend.Variable, p.slots),
		Supply:     proof.Supply.ToBig(),
	}
	for i := range assignment.Quantities {
		assignment.Quantities[i] = big.NewInt(0)
	}
	witness, err := frontend.NewWitness(assignment, p.curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}
	if err := groth16.Verify(proof.Proof, p.vk, witness); err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	return nil
}
