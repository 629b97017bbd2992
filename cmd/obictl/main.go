// obictl 运维小工具：撤单、查询交易对精度与持仓、按当前盘口推算参数。
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"obi-market-maker/config"
	"obi-market-maker/gateway"
	"obi-market-maker/strategy"
)

const usage = `用法: obictl <command> [flags]

命令:
  cancel    撤销交易对全部挂单
  position  查询当前净持仓与挂单
  meta      查询交易对 tickSize 与价格精度
  params    按当前盘口与费率推算 half_spread/c1/skew
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfgPath := fs.String("config", "configs/config.yaml", "配置文件路径")
	envFile := fs.String("env", ".env", "环境变量文件，不存在时忽略")
	symbol := fs.String("symbol", "", "交易对，默认取配置中的 symbol")
	timeout := fs.Duration("timeout", 15*time.Second, "请求超时")
	alphaStd := fs.Float64("alphaStd", 1, "信号标准差估计（params）")
	epsilon := fs.Float64("epsilon", 0, "每轮期望最小利润，报价货币（params）")
	qty := fs.Float64("qty", 0, "下单量，默认取配置中的 order_qty（params）")
	makerFee := fs.Float64("makerFee", strategy.DefaultMakerFee, "maker 费率（params）")
	takerFee := fs.Float64("takerFee", strategy.DefaultTakerFee, "taker 费率（params）")
	_ = fs.Parse(args)

	_ = godotenv.Load(*envFile)

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	sym := strings.ToUpper(strings.TrimSpace(*symbol))
	if sym == "" {
		sym = strings.ToUpper(cfg.Strategy.Symbol)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	ep := endpoints(cfg)
	client := &gateway.BinanceRESTClient{
		BaseURL:      ep.REST,
		APIKey:       cfg.Strategy.APIKey,
		Secret:       cfg.Strategy.Secret,
		HTTPClient:   &http.Client{Timeout: cfg.Gateway.Timeout},
		RecvWindowMs: cfg.Gateway.RecvWindowMs,
		Limiter:      gateway.NewTokenBucketLimiter(cfg.Gateway.Rate, cfg.Gateway.Burst),
	}
	gw := gateway.NewBinanceGateway(client)

	switch cmd {
	case "cancel":
		if err := gw.CancelAll(ctx, sym); err != nil {
			log.Fatalf("撤单失败: %v", err)
		}
		fmt.Printf("[%s] 所有挂单已提交撤销\n", sym)

	case "position":
		pos, err := gw.Inventory(ctx, sym)
		if err != nil {
			log.Fatalf("查询持仓失败: %v", err)
		}
		resting, err := gw.RestingOrders(ctx, sym)
		if err != nil {
			log.Fatalf("查询挂单失败: %v", err)
		}
		fmt.Printf("[%s] 净持仓 %.6f，挂单 %d 笔\n", sym, pos, len(resting))
		for _, o := range resting {
			fmt.Printf("  %s %-4s price=%.8f tick=%d qty=%.6f\n", o.ID, o.Side, o.Price, o.Tick, o.Qty)
		}

	case "meta":
		meta, err := gw.MarketMetadata(ctx, sym)
		if err != nil {
			log.Fatalf("获取交易对信息失败: %v", err)
		}
		if err := strategy.ValidateMetadata(meta); err != nil {
			log.Fatalf("%s 元数据不可用: %v", sym, err)
		}
		fmt.Printf("%s tickSize=%.8f 价格精度=%d\n", meta.Symbol, meta.TickSize, meta.PricePrecision)

	case "params":
		orderQty := *qty
		if orderQty <= 0 {
			orderQty = cfg.Strategy.OrderQty
		}
		meta, err := gw.MarketMetadata(ctx, sym)
		if err != nil {
			log.Fatalf("获取交易对信息失败: %v", err)
		}
		stream := gateway.NewDepthStream(ep.WS)
		sub, err := stream.Subscribe(ctx, sym, cfg.Strategy.Limit)
		if err != nil {
			log.Fatalf("订阅深度失败: %v", err)
		}
		snap, err := sub.Next(ctx)
		_ = sub.Close()
		if err != nil {
			log.Fatalf("读取深度失败: %v", err)
		}
		if err := snap.Validate(); err != nil {
			log.Fatalf("盘口不可用: %v", err)
		}
		bid, ask := snap.BestBid(), snap.BestAsk()
		out, err := strategy.SuggestParams(strategy.ParamInput{
			BestBid:       bid,
			BestAsk:       ask,
			TickSize:      meta.TickSize,
			MakerFee:      *makerFee,
			TakerFee:      *takerFee,
			OrderQty:      orderQty,
			AlphaStd:      *alphaStd,
			EpsilonProfit: *epsilon,
		})
		if err != nil {
			log.Fatalf("推算参数失败: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)

	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func endpoints(cfg config.AppConfig) gateway.Endpoints {
	rest, ws := cfg.Gateway.RESTURL, cfg.Gateway.WSURL
	if cfg.Strategy.SandboxMode {
		rest, ws = cfg.Gateway.TestnetRESTURL, cfg.Gateway.TestnetWSURL
	}
	return gateway.ResolveEndpoints(cfg.Strategy.SandboxMode, rest, ws)
}
