package tiers

// Arbitrum public sale tiers. Prices are micro-USDC; the discounted price carries the promo code rebate.
var defaultTiers = []Tier{
	{ID: "PublicTier1Arbitrum", Price: 275_000_000, PriceWithDiscount: 247_500_000, MaxAllocationPerWallet: 200, MaxTotalPurchasable: 500},
	{ID: "PublicTier2Arbitrum", Price: 297_000_000, PriceWithDiscount: 267_300_000, MaxAllocationPerWallet: 200, MaxTotalPurchasable: 500},
	{ID: "PublicTier3Arbitrum", Price: 321_000_000, PriceWithDiscount: 288_900_000, MaxAllocationPerWallet: 200, MaxTotalPurchasable: 1000},
	{ID: "PublicTier4Arbitrum", Price: 346_000_000, PriceWithDiscount: 311_400_000, MaxAllocationPerWallet: 200, MaxTotalPurchasable: 2800},
	{ID: "PublicTier5Arbitrum", Price: 374_000_000, PriceWithDiscount: 336_600_000, MaxAllocationPerWallet: 2800, MaxTotalPurchasable: 2800},
	{ID: "PublicTier6Arbitrum", Price: 404_000_000, PriceWithDiscount: 363_600_000, MaxAllocationPerWallet: 2415, MaxTotalPurchasable: 2415},
	{ID: "PublicTier7Arbitrum", Price: 436_000_000, PriceWithDiscount: 392_400_000, MaxAllocationPerWallet: 2793, MaxTotalPurchasable: 2793},
	{ID: "PublicTier8Arbitrum", Price: 471_000_000, PriceWithDiscount: 423_900_000, MaxAllocationPerWallet: 3596, MaxTotalPurchasable: 3596},
	{ID: "PublicTier9Arbitrum", Price: 509_000_000, PriceWithDiscount: 458_100_000, MaxAllocationPerWallet: 3673, MaxTotalPurchasable: 3673},
	{ID: "PublicTier10Arbitrum", Price: 550_000_000, PriceWithDiscount: 495_000_000, MaxAllocationPerWallet: 2522, MaxTotalPurchasable: 2522},
	{ID: "PublicTier11Arbitrum", Price: 594_000_000, PriceWithDiscount: 534_600_000, MaxAllocationPerWallet: 2544, MaxTotalPurchasable: 2544},
	{ID: "PublicTier12Arbitrum", Price: 641_000_000, PriceWithDiscount: 576_900_000, MaxAllocationPerWallet: 1740, MaxTotalPurchasable: 1740},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{tiers: append([]Tier(nil), defaultTiers...)}
}
