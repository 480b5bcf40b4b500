package chain

// Bitcoin mainnet genesis hash, used as its CAIP-2 reference.
const BitcoinMainnetID = BIP122Prefix + "000000000019d6689c085ae165831e93"

// TronMainnetID is the CAIP-2 id of Tron mainnet.
const TronMainnetID = TronPrefix + "728126428"

// Defaults returns the built-in chain descriptions. Anything loaded from
// the chain registry or the config file replaces these by identifier.
func Defaults() []ChainInfo {
	atom := Currency{CoinDenom: "ATOM", CoinMinimalDenom: "uatom", CoinDecimals: 6, CoinGeckoID: "cosmos"}
	osmo := Currency{CoinDenom: "OSMO", CoinMinimalDenom: "uosmo", CoinDecimals: 6, CoinGeckoID: "osmosis"}
	eth := Currency{CoinDenom: "ETH", CoinMinimalDenom: "ethereum-native", CoinDecimals: 18, CoinGeckoID: "ethereum"}
	btc := Currency{CoinDenom: "BTC", CoinMinimalDenom: "sat", CoinDecimals: 8, CoinGeckoID: "bitcoin"}
	trx := Currency{CoinDenom: "TRX", CoinMinimalDenom: "sun", CoinDecimals: 6, CoinGeckoID: "tron"}

	return []ChainInfo{
		{
			RPC:           "https://rpc-cosmoshub.keplr.app",
			Rest:          "https://lcd-cosmoshub.keplr.app",
			ChainID:       "cosmoshub-4",
			ChainName:     "Cosmos Hub",
			Bip44:         Bip44{CoinType: 118},
			Bech32Config:  NewBech32Config("cosmos"),
			Currencies:    []Currency{atom},
			FeeCurrencies: []FeeCurrency{{Currency: atom, GasPriceStep: &GasPriceStep{Low: 0.005, Average: 0.025, High: 0.03}}},
			StakeCurrency: &atom,
			Features:      []string{FeatureIBCTransfer},
		},
		{
			RPC:           "https://rpc-osmosis.keplr.app",
			Rest:          "https://lcd-osmosis.keplr.app",
			ChainID:       "osmosis-1",
			ChainName:     "Osmosis",
			Bip44:         Bip44{CoinType: 118},
			Bech32Config:  NewBech32Config("osmo"),
			Currencies:    []Currency{osmo},
			FeeCurrencies: []FeeCurrency{{Currency: osmo, GasPriceStep: &GasPriceStep{Low: 0.0025, Average: 0.025, High: 0.04}}},
			StakeCurrency: &osmo,
			Features:      []string{FeatureIBCTransfer, FeatureCosmwasm},
		},
		{
			RPC:       "https://evm-1.keplr.app",
			Rest:      "https://evm-1.keplr.app",
			ChainID:   EIP155Prefix + "1",
			ChainName: "Ethereum",
			Bip44:     Bip44{CoinType: 60},
			Currencies: []Currency{
				eth,
				{CoinDenom: "USDT", CoinMinimalDenom: "erc20:0xdAC17F958D2ee523a2206206994597C13D831ec7", CoinDecimals: 6, CoinGeckoID: "tether"},
				{CoinDenom: "USDC", CoinMinimalDenom: "erc20:0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", CoinDecimals: 6, CoinGeckoID: "usd-coin"},
				{CoinDenom: "WETH", CoinMinimalDenom: "erc20:0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", CoinDecimals: 18, CoinGeckoID: "weth"},
			},
			FeeCurrencies: []FeeCurrency{{Currency: eth, GasPriceStep: &GasPriceStep{Low: 1e9, Average: 1.5e9, High: 2e9}}},
			EVM:           &EVMInfo{ChainID: 1, RPC: "https://evm-1.keplr.app"},
			Features:      []string{FeatureEthKeySign, FeatureEthAddress},
		},
		{
			RPC:       "https://evm-42161.keplr.app",
			Rest:      "https://evm-42161.keplr.app",
			ChainID:   EIP155Prefix + "42161",
			ChainName: "Arbitrum One",
			Bip44:     Bip44{CoinType: 60},
			Currencies: []Currency{
				eth,
				{CoinDenom: "USDC", CoinMinimalDenom: "erc20:0xaf88d065e77c8cC2239327C5EDb3A432268e5831", CoinDecimals: 6, CoinGeckoID: "usd-coin"},
			},
			FeeCurrencies: []FeeCurrency{{Currency: eth, GasPriceStep: &GasPriceStep{Low: 1e7, Average: 1.5e7, High: 2e7}}},
			EVM:           &EVMInfo{ChainID: 42161, RPC: "https://evm-42161.keplr.app"},
			Features:      []string{FeatureEthKeySign, FeatureEthAddress},
		},
		{
			RPC:           "https://mempool.space/api",
			Rest:          "https://mempool.space/api",
			ChainID:       BitcoinMainnetID,
			ChainName:     "Bitcoin",
			Bip44:         Bip44{CoinType: 0},
			Currencies:    []Currency{btc},
			FeeCurrencies: []FeeCurrency{{Currency: btc}},
		},
		{
			RPC:           "https://api.trongrid.io",
			Rest:          "https://api.trongrid.io",
			ChainID:       TronMainnetID,
			ChainName:     "Tron",
			Bip44:         Bip44{CoinType: 195},
			Currencies:    []Currency{trx},
			FeeCurrencies: []FeeCurrency{{Currency: trx}},
		},
	}
}
