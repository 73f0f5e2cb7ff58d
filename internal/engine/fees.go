package engine

import "fmt"

// Skill type IDs that drive trading fees.
const (
	SkillBrokerRelations int32 = 3446
	SkillAccounting      int32 = 16622
)

const (
	npcBaseBrokerFee     = 0.05
	brokerFeePerLevel    = 0.003
	structureBrokerFee   = 0.02
	baseSalesTax         = 0.05
	salesTaxCutPerLevel  = 0.011
	minFeePerTransaction = 100.0
)

// FeeModel holds the skill levels and venue that determine fee rates.
type FeeModel struct {
	BrokerRelations int
	Accounting      int
	NPCStation      bool
}

// FeeModelFromSkills builds a FeeModel from a skill-level map. A missing
// Broker Relations or Accounting entry is an ErrInvariant.
func FeeModelFromSkills(skills map[int32]int, npcStation bool) (FeeModel, error) {
	br, ok := skills[SkillBrokerRelations]
	if !ok {
		return FeeModel{}, fmt.Errorf("%w: skill %d (Broker Relations) missing", ErrInvariant, SkillBrokerRelations)
	}
	acc, ok := skills[SkillAccounting]
	if !ok {
		return FeeModel{}, fmt.Errorf("%w: skill %d (Accounting) missing", ErrInvariant, SkillAccounting)
	}
	return FeeModel{BrokerRelations: br, Accounting: acc, NPCStation: npcStation}, nil
}

// BrokerFee is the broker fee rate charged on order placement.
func (f FeeModel) BrokerFee() float64 {
	if !f.NPCStation {
		return structureBrokerFee
	}
	return npcBaseBrokerFee - brokerFeePerLevel*float64(f.BrokerRelations)
}

// SalesTax is the tax rate charged on sales.
func (f FeeModel) SalesTax() float64 {
	return baseSalesTax * (1 - salesTaxCutPerLevel*float64(f.Accounting))
}

// BuyFeeRate is the rate charged on the buy order: broker fee only.
func (f FeeModel) BuyFeeRate() float64 { return f.BrokerFee() }

// SellFeeRate is the rate charged on the sell order: broker fee plus sales tax.
func (f FeeModel) SellFeeRate() float64 { return f.BrokerFee() + f.SalesTax() }

// Fees is the total charged for buying and reselling volume units at the
// given prices. Each leg costs at least minFeePerTransaction.
func (f FeeModel) Fees(volume, buyPrice, sellPrice float64) float64 {
	buyLeg := volume * buyPrice * f.BuyFeeRate()
	sellLeg := volume * sellPrice * f.SellFeeRate()
	return max(minFeePerTransaction, buyLeg) + max(minFeePerTransaction, sellLeg)
}
