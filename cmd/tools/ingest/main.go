package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/hirestream/backend/internal/config"
	"github.com/zhouzirui/hirestream/backend/internal/service/search"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	source := flag.String("source", cfg.Search.CandidatesSource, "候选人语料路径，本地文件或 s3://bucket/key")
	chunkSize := flag.Int("chunk", 1000, "分块大小（字符数）")
	overlap := flag.Int("overlap", 200, "相邻分块的重叠字符数")
	query := flag.String("query", "", "导入后执行一次检索验证，留空则跳过")
	timeout := flag.Duration("timeout", 5*time.Minute, "整体超时时间")

	flag.Parse()

	if *source == "" {
		flag.Usage()
		log.Fatal("请通过 -source 或 CANDIDATES_SOURCE 指定语料")
	}
	if !cfg.Search.VectorEnabled() {
		log.Fatal("未配置 QDRANT_URL，无法写入向量库")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	loader := search.NewLoader(nil)
	if cfg.Search.S3.Enabled() {
		client, err := cfg.Search.S3.NewClient(ctx)
		if err != nil {
			log.Fatalf("对象存储初始化失败: %v", err)
		}
		loader = search.NewLoader(client)
	}

	start := time.Now()
	doc, err := loader.Load(ctx, *source)
	if err != nil {
		log.Fatalf("读取语料失败: %v", err)
	}
	log.Printf("读取完成: %s (%d 字节)", doc.Name, len(doc.Text))

	embedder := search.NewOllamaEmbedder(cfg.Search.OllamaURL, cfg.Search.EmbedModel)
	index := search.NewQdrantIndex(cfg.Search.QdrantURL, cfg.Search.Collection, embedder)
	svc := search.NewService(index, search.NewSplitter(*chunkSize, *overlap))

	ids, err := svc.Ingest(ctx, doc)
	if err != nil {
		log.Fatalf("写入向量库失败: %v", err)
	}
	log.Printf("写入完成: %d 个分块 -> %s/%s (耗时 %s)", len(ids), cfg.Search.QdrantURL, cfg.Search.Collection, time.Since(start).Round(time.Millisecond))

	if *query == "" {
		return
	}

	passages, err := svc.Retrieve(ctx, *query, cfg.Search.TopK)
	if err != nil {
		log.Fatalf("检索验证失败: %v", err)
	}
	for i, p := range passages {
		log.Printf("[%d] %s", i+1, p)
	}
}
