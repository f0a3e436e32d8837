package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"sync"
	"time"

	"skoropad/internal/config"
	"skoropad/internal/services"
	"skoropad/internal/utils"

	"github.com/google/uuid"
)

// 开发环境测试数据：用户、广告，以及买家与发布者之间的私信
var (
	userCount    = flag.Int("users", 200, "用户数量")
	listingCount = flag.Int("listings", 400, "广告数量")
	threadCount  = flag.Int("threads", 1500, "会话数量")
	maxPerThread = flag.Int("messages", 8, "每个会话最多消息数")
	workers      = flag.Int("workers", runtime.NumCPU()*4, "并发写入数")
)

var familyNames = []string{"Иванов", "Петров", "Сидоров", "Кузнецов", "Смирнов", "Попов", "Соколов", "Морозов"}

var givenNames = []string{"Алексей", "Мария", "Дмитрий", "Анна", "Сергей", "Ольга", "Илья", "Екатерина"}

var listingTitles = []string{
	"Велосипед горный", "Диван угловой", "iPhone 13", "Коляска детская", "Стол письменный",
	"Зимняя резина R16", "Холодильник Bosch", "Гитара акустическая", "Ноутбук Lenovo", "Шкаф-купе",
}

var buyerLines = []string{
	"Здравствуйте, ещё продаётся?", "Какой торг?", "Можно посмотреть сегодня вечером?",
	"Есть доставка?", "Почему продаёте?", "Пришлите, пожалуйста, ещё фото",
}

var sellerLines = []string{
	"Да, актуально", "Небольшой торг возможен", "Можно после 18:00",
	"Доставки нет, только самовывоз", "Фото отправил", "Уже договорился, извините",
}

func runWorkers(total int, workerCount int, fn func(idx int, rnd *rand.Rand)) {
	if total <= 0 {
		return
	}
	if workerCount <= 0 {
		workerCount = 1
	}

	jobs := make(chan int, workerCount*4)
	var wg sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID*9973)))
			for idx := range jobs {
				fn(idx, rnd)
			}
		}(i)
	}

	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func randomChoice[T any](rnd *rand.Rand, arr []T) T {
	if len(arr) == 0 {
		var zero T
		return zero
	}
	return arr[rnd.Intn(len(arr))]
}

func userID(i int) string    { return fmt.Sprintf("seed-u%d", i) }
func listingID(i int) string { return fmt.Sprintf("seed-ad%d", i) }

func main() {
	flag.Parse()

	cfg := config.Load()
	if err := utils.InitLogger(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer utils.CloseLogger()
	logger := utils.GetLogger()

	db, err := services.NewDatabase(cfg)
	if err != nil {
		logger.Fatal("数据库连接失败", "error", err.Error())
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("建表失败", "error", err.Error())
	}

	start := time.Now()
	generateUsers(db.DB, logger)
	generateListings(db.DB, logger)
	generateThreads(db.DB, logger)
	logger.Info("测试数据生成完成", "duration", time.Since(start).String())
}

func generateUsers(db *sql.DB, logger utils.Logger) {
	stmt, err := db.Prepare(`INSERT IGNORE INTO users (id, nickname, role, avatar_url, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		logger.Fatal("准备用户插入语句失败", "error", err.Error())
	}
	defer stmt.Close()

	runWorkers(*userCount, *workers, func(i int, rnd *rand.Rand) {
		role := "user"
		if rnd.Float64() < 0.1 {
			role = "vip"
		}
		nickname := randomChoice(rnd, givenNames) + " " + randomChoice(rnd, familyNames)
		avatar := fmt.Sprintf("avatars/%s.png", userID(i))
		createdAt := time.Now().UTC().Add(-time.Duration(rnd.Intn(365*24)) * time.Hour)
		if _, err := stmt.Exec(userID(i), nickname, role, avatar, createdAt); err != nil {
			logger.Fatal("插入用户失败", "error", err.Error())
		}
	})
	logger.Info("用户生成完成", "count", *userCount)
}

func generateListings(db *sql.DB, logger utils.Logger) {
	stmt, err := db.Prepare(`INSERT IGNORE INTO advertisements (id, user_id, title, price, images, status) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		logger.Fatal("准备广告插入语句失败", "error", err.Error())
	}
	defer stmt.Close()

	runWorkers(*listingCount, *workers, func(i int, rnd *rand.Rand) {
		status := "active"
		if rnd.Float64() < 0.1 {
			status = "sold"
		}
		images := fmt.Sprintf(`["listings/%s/1.jpg","listings/%s/2.jpg"]`, listingID(i), listingID(i))
		price := float64(500+rnd.Intn(100000)) / 10
		owner := userID(rnd.Intn(*userCount))
		if _, err := stmt.Exec(listingID(i), owner, randomChoice(rnd, listingTitles), price, images, status); err != nil {
			logger.Fatal("插入广告失败", "error", err.Error())
		}
	})
	logger.Info("广告生成完成", "count", *listingCount)
}

// generateThreads 每个会话由买家发起，双方交替回复，最后几条对方消息保持未读
func generateThreads(db *sql.DB, logger utils.Logger) {
	owners := make(map[string]string, *listingCount)
	rows, err := db.Query(`SELECT id, user_id FROM advertisements WHERE id LIKE 'seed-ad%'`)
	if err != nil {
		logger.Fatal("查询广告失败", "error", err.Error())
	}
	var ids []string
	for rows.Next() {
		var id, owner string
		if err := rows.Scan(&id, &owner); err != nil {
			logger.Fatal("扫描广告失败", "error", err.Error())
		}
		owners[id] = owner
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) == 0 || *userCount < 2 {
		return
	}

	stmt, err := db.Prepare(`INSERT INTO messages (id, advertisement_id, sender_id, receiver_id, content, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		logger.Fatal("准备消息插入语句失败", "error", err.Error())
	}
	defer stmt.Close()

	var mu sync.Mutex
	total := 0
	runWorkers(*threadCount, *workers, func(_ int, rnd *rand.Rand) {
		listing := randomChoice(rnd, ids)
		seller := owners[listing]
		buyer := userID(rnd.Intn(*userCount))
		if buyer == seller {
			return
		}

		n := 1 + rnd.Intn(*maxPerThread)
		unreadFrom := n - rnd.Intn(3)
		at := time.Now().UTC().Add(-time.Duration(rnd.Intn(30*24)) * time.Hour)
		for k := 0; k < n; k++ {
			sender, receiver, lines := buyer, seller, buyerLines
			if k%2 == 1 {
				sender, receiver, lines = seller, buyer, sellerLines
			}
			at = at.Add(time.Duration(1+rnd.Intn(90)) * time.Minute).Truncate(time.Microsecond)
			if _, err := stmt.Exec(uuid.NewString(), listing, sender, receiver, randomChoice(rnd, lines), k < unreadFrom, at); err != nil {
				logger.Fatal("插入消息失败", "error", err.Error())
			}
		}
		mu.Lock()
		total += n
		mu.Unlock()
	})
	logger.Info("私信生成完成", "threads", *threadCount, "messages", total)
}
